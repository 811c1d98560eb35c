package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Driving School Booking API",
        "description": "Course enrollment with seat and vehicle capacity control",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Enrollments", "description": "Course booking and enrollment review"},
        {"name": "Schedules", "description": "Schedule availability and staff operations"},
        {"name": "Proofs", "description": "Signed payment proof downloads"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is down"}
                }
            }
        },
        "/enroll": {
            "post": {
                "tags": ["Enrollments"],
                "summary": "Book a course",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "course_id", "in": "formData", "type": "string", "required": true},
                    {"name": "schedule_id", "in": "formData", "type": "string"},
                    {"name": "schedule_ids", "in": "formData", "type": "string", "description": "JSON array, one schedule per day"},
                    {"name": "address", "in": "formData", "type": "string", "required": true},
                    {"name": "contact_number", "in": "formData", "type": "string", "required": true},
                    {"name": "gcash_reference_number", "in": "formData", "type": "string", "required": true},
                    {"name": "birthday", "in": "formData", "type": "string", "required": true},
                    {"name": "age", "in": "formData", "type": "integer", "required": true},
                    {"name": "nationality", "in": "formData", "type": "string", "required": true},
                    {"name": "civil_status", "in": "formData", "type": "string", "required": true},
                    {"name": "gender", "in": "formData", "type": "string", "required": true},
                    {"name": "is_pregnant", "in": "formData", "type": "boolean"},
                    {"name": "is_pwd", "in": "formData", "type": "boolean"},
                    {"name": "payment_type", "in": "formData", "type": "string", "enum": ["full", "partial"], "required": true},
                    {"name": "amount_paid", "in": "formData", "type": "string", "required": true},
                    {"name": "vehicle_category", "in": "formData", "type": "string"},
                    {"name": "vehicle_type", "in": "formData", "type": "string"},
                    {"name": "proof_image", "in": "formData", "type": "file", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid booking", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Capacity exhausted or duplicate", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/enrollments/{id}": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "Get enrollment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/api/enrollments/{id}/status": {
            "patch": {
                "tags": ["Enrollments"],
                "summary": "Update enrollment status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateEnrollmentStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Status changed concurrently"}
                }
            }
        },
        "/api/enrollments/{id}/proof-url": {
            "get": {
                "tags": ["Proofs"],
                "summary": "Issue a signed proof link",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/proofs/{token}": {
            "get": {
                "tags": ["Proofs"],
                "summary": "Download a payment proof",
                "produces": ["image/png", "image/jpeg", "application/pdf"],
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "401": {"description": "Expired or tampered link"}
                }
            }
        },
        "/api/schedules/with-availability": {
            "get": {
                "tags": ["Schedules"],
                "summary": "List bookable schedules with vehicle availability",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "course_id", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/vehicles/check-availability": {
            "post": {
                "tags": ["Schedules"],
                "summary": "Check vehicle availability for schedules",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckVehicleAvailabilityRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/schedules/{id}": {
            "delete": {
                "tags": ["Schedules"],
                "summary": "Delete schedule and its enrollments",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Admin only"}
                }
            }
        },
        "/api/schedules/{id}/roster": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Export schedule roster",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        }
    },
    "definitions": {
        "UpdateEnrollmentStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["pending", "approved", "active", "ongoing", "passed", "completed", "failed"]}
            }
        },
        "CheckVehicleAvailabilityRequest": {
            "type": "object",
            "required": ["vehicle_category", "vehicle_type", "schedule_ids"],
            "properties": {
                "vehicle_category": {"type": "string"},
                "vehicle_type": {"type": "string"},
                "schedule_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
