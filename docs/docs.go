// Package docs registers the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/login": {
            "post": {
                "description": "Checks credentials and, for students, analyses their own record for their class.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Sign in",
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.LoginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.LoginResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/analyze": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Predicts the nine subject grades for a student and class and derives risks and a recommendation. Students may only analyse themselves.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Analyse a student",
                "parameters": [
                    {
                        "description": "Student and class",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.AnalyzeRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.AnalysisResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/subjects": {
            "get": {
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "List subjects in grade vector order",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"type": "string"}}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Component health",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable"}
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Request, login, analysis and rate limit counters",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "analysis.SubjectResult": {
            "type": "object",
            "properties": {
                "subject": {"type": "string"},
                "grade": {"type": "integer"},
                "risk": {"type": "integer"},
                "severity": {"type": "string", "enum": ["low", "medium", "high"]}
            }
        },
        "types.AnalysisResponse": {
            "type": "object",
            "properties": {
                "student_id": {"type": "string"},
                "class_num": {"type": "integer"},
                "subjects": {"type": "array", "items": {"$ref": "#/definitions/analysis.SubjectResult"}},
                "grades": {"type": "array", "items": {"type": "integer"}},
                "risks": {"type": "array", "items": {"type": "integer"}},
                "recommendation": {"type": "string"},
                "average": {"type": "number"},
                "model": {"type": "string"}
            }
        },
        "types.AnalyzeRequest": {
            "type": "object",
            "required": ["student_id"],
            "properties": {
                "student_id": {"type": "string"},
                "class_num": {"type": "integer", "minimum": 1, "maximum": 12}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "category": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "types.LoginRequest": {
            "type": "object",
            "required": ["login", "password"],
            "properties": {
                "login": {"type": "string", "maxLength": 128},
                "password": {"type": "string", "maxLength": 128}
            }
        },
        "types.LoginResponse": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "expires_at": {"type": "integer"},
                "role": {"type": "string"},
                "view": {"type": "string"},
                "analysis": {"$ref": "#/definitions/types.AnalysisResponse"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Gradewatch API",
	Description:      "Predicted grades, academic risk and study recommendations per student.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
