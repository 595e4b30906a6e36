package design

import (
    . "goa.design/goa/v3/dsl"
)

// API definition
var _ = API("phyto", func() {
    Title("Phyto Plant Disease Monitor")
    Description("Real-time plant disease monitoring with sensor-gated sprayer actuation")
    Version("1.0")
    Server("phyto", func() {
        Host("localhost", func() {
            URI("http://localhost:8080")
        })
    })
})

// Error types
var BadRequestError = Type("BadRequestError", func() {
    Description("Bad request error")
    Field(1, "message", String, "Error message")
    Required("message")
})

// Data types
var PlantStatus = Type("PlantStatus", func() {
    Description("Current stable reading plus the latest environment sample")
    Field(1, "plant", String, "Stable severity label", func() {
        Enum("healthy", "low", "medium", "high", "no_plant")
    })
    Field(2, "confidence", Float64, "Smoothed confidence (0-100)")
    Field(3, "color_class", String, "Dashboard color hint", func() {
        Enum("green", "red")
    })
    Field(4, "moisture", Float64, "Soil moisture percentage")
    Field(5, "temperature", Float64, "Air temperature in Celsius")
    Field(6, "humidity", Float64, "Air humidity percentage")
    Field(7, "motor", String, "Sprayer state", func() {
        Enum("ON", "OFF")
    })
    Required("plant", "confidence", "color_class", "moisture", "motor")
})

var ActivityEntry = Type("ActivityEntry", func() {
    Description("One activity log event")
    Field(1, "id", String, "Entry unique identifier", func() {
        Format(FormatUUID)
    })
    Field(2, "time", String, "Wall clock time (HH:MM:SS)")
    Field(3, "message", String, "Event description")
    Field(4, "type", String, "Entry level", func() {
        Enum("info", "success", "warning", "error")
    })
    Required("id", "time", "message", "type")
})

var MotorCommand = Type("MotorCommand", func() {
    Description("Actuation command for the polling soil node")
    Field(1, "motor_command", String, "What the node should do with its pump", func() {
        Enum("RUN", "STOP")
    })
    Field(2, "duration", Int, "Run length in seconds, 0 when stopped")
    Required("motor_command", "duration")
})

// Status service
var _ = Service("status", func() {
    Description("Dashboard status and activity log")

    Method("status", func() {
        Description("Current stable reading, environment sample and motor state")
        Result(PlantStatus)
        HTTP(func() {
            GET("/status")
            Response(StatusOK)
        })
    })

    Method("logs", func() {
        Description("Recent activity log entries, oldest first")
        Result(ArrayOf(ActivityEntry))
        HTTP(func() {
            GET("/logs")
            Response(StatusOK)
        })
    })

    Method("healthz", func() {
        Description("Liveness probe endpoint")
        Result(String)
        HTTP(func() {
            GET("/healthz")
            Response(StatusOK)
        })
    })
})

// Sprayer service
var _ = Service("sprayer", func() {
    Description("Sensor ingestion and sprayer actuation")
    Error("bad_request", BadRequestError)

    Method("process", func() {
        Description("Ingest a soil moisture report and answer with a motor command")
        Payload(func() {
            Field(1, "moisture", Float64, "Soil moisture percentage")
            Required("moisture")
        })
        Result(MotorCommand)
        HTTP(func() {
            POST("/process")
            Response(StatusOK)
            Response("bad_request", StatusBadRequest)
        })
    })

    Method("dht22", func() {
        Description("Ingest a temperature/humidity report")
        Payload(func() {
            Field(1, "temperature", Float64, "Air temperature in Celsius")
            Field(2, "humidity", Float64, "Air humidity percentage")
        })
        Result(func() {
            Field(1, "status", String, "Always \"received\"")
            Required("status")
        })
        HTTP(func() {
            POST("/dht22")
            Response(StatusOK)
            Response("bad_request", StatusBadRequest)
        })
    })

    Method("force_spray", func() {
        Description("Queue a manual spray override, dispatched on the next evaluation")
        Result(func() {
            Field(1, "status", String, "Always \"queued\"")
            Required("status")
        })
        HTTP(func() {
            POST("/force_spray")
            Response(StatusOK)
        })
    })
})
