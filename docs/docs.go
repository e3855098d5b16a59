// Package docs registers the dunning OpenAPI document with swag so the HTTP
// transport can serve it at /swagger/doc.json.
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
        "/api/voice/health": {
            "get": {
                "description": "Reports which recognition models are usable: healthy (all), degraded (some) or unhealthy (none).",
                "produces": ["application/json"],
                "tags": ["voice"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.HealthStatus"}}
                }
            }
        },
        "/api/voice/process": {
            "post": {
                "description": "Accepts a 16 kHz mono 16-bit PCM WAV either as multipart field \"audio\" (with form field \"language\") or as a raw audio/wav body (with query parameter \"language\"). The reply is transcribed and sorted into one of six categories.",
                "consumes": ["multipart/form-data", "audio/wav"],
                "produces": ["application/json"],
                "tags": ["voice"],
                "summary": "Recognize and classify a voice reply",
                "parameters": [
                    {"type": "file", "description": "WAV file (16kHz, mono, 16-bit)", "name": "audio", "in": "formData"},
                    {"enum": ["ru", "kk", "auto"], "type": "string", "default": "auto", "description": "Recognition language", "name": "language", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.VoiceResult"}},
                    "400": {"description": "Invalid file type or audio format", "schema": {"$ref": "#/definitions/message.ErrorResponse"}},
                    "413": {"description": "Upload too large", "schema": {"$ref": "#/definitions/message.ErrorResponse"}},
                    "500": {"description": "Recognition error", "schema": {"$ref": "#/definitions/message.ErrorResponse"}},
                    "503": {"description": "Recognition model not installed", "schema": {"$ref": "#/definitions/message.ErrorResponse"}}
                }
            }
        },
        "/api/voice/classify": {
            "post": {
                "description": "Classifies a debtor reply that is already transcribed or typed in. With language \"auto\" the language is detected, falling back to Russian.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["voice"],
                "summary": "Classify a text reply",
                "parameters": [
                    {"description": "Reply text", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/message.TextRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.TextResult"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/message.ErrorResponse"}}
                }
            }
        },
        "/api/voice/languages": {
            "get": {
                "produces": ["application/json"],
                "tags": ["voice"],
                "summary": "Supported languages",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.languagesResponse"}}
                }
            }
        },
        "/api/voice/categories": {
            "get": {
                "produces": ["application/json"],
                "tags": ["voice"],
                "summary": "Classification categories",
                "parameters": [
                    {"enum": ["ru", "kk"], "type": "string", "default": "ru", "description": "Description language", "name": "language", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.categoriesResponse"}},
                    "400": {"description": "Unsupported language", "schema": {"$ref": "#/definitions/message.ErrorResponse"}}
                }
            }
        },
        "/api/voice/prompt": {
            "post": {
                "description": "Renders the greeting read to the debtor and, when TTS is enabled, synthesizes it. Audio is returned base64-encoded.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["voice"],
                "summary": "Collection prompt",
                "parameters": [
                    {"description": "Debtor details", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/message.PromptRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/message.PromptResult"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/message.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "http.categoriesResponse": {
            "type": "object",
            "properties": {
                "categories": {"type": "array", "items": {"$ref": "#/definitions/message.CategoryInfo"}}
            }
        },
        "http.languagesResponse": {
            "type": "object",
            "properties": {
                "languages": {"type": "array", "items": {"$ref": "#/definitions/message.LanguageInfo"}}
            }
        },
        "message.CategoryInfo": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "description": {"type": "string"}
            }
        },
        "message.Classification": {
            "type": "object",
            "properties": {
                "category": {"type": "string", "enum": ["ignore", "promise", "help", "wrong_number", "third_party", "hangup"]},
                "category_description": {"type": "string"},
                "confidence": {"type": "number"},
                "matched_keywords": {"type": "array", "items": {"type": "string"}},
                "promised_date": {"type": "string", "example": "2026-03-15"},
                "reason": {"type": "string"}
            }
        },
        "message.ErrorResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "error": {"type": "string"},
                "error_code": {"type": "string", "example": "INVALID_AUDIO_FORMAT"},
                "request_id": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "message.HealthStatus": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["healthy", "degraded", "unhealthy"]},
                "timestamp": {"type": "string"},
                "version": {"type": "string"},
                "models": {"type": "object", "additionalProperties": {"type": "boolean"}},
                "available_languages": {"type": "array", "items": {"type": "string"}}
            }
        },
        "message.LanguageInfo": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "name": {"type": "string"},
                "available": {"type": "boolean"}
            }
        },
        "message.PromptRequest": {
            "type": "object",
            "properties": {
                "client_id": {"type": "string"},
                "fio": {"type": "string"},
                "creditor": {"type": "string"},
                "amount": {"type": "number"},
                "days_overdue": {"type": "integer"},
                "language": {"type": "string", "enum": ["ru", "kk"]}
            }
        },
        "message.PromptResult": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "text": {"type": "string"},
                "language": {"type": "string"},
                "audio": {"type": "string", "format": "byte"},
                "content_type": {"type": "string"}
            }
        },
        "message.TextRequest": {
            "type": "object",
            "properties": {
                "text": {"type": "string"},
                "language": {"type": "string", "enum": ["ru", "kk", "auto"]}
            }
        },
        "message.TextResult": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "request_id": {"type": "string"},
                "timestamp": {"type": "string"},
                "text": {"type": "string"},
                "detected_language": {"type": "string"},
                "classification": {"$ref": "#/definitions/message.Classification"}
            }
        },
        "message.VoiceResult": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "request_id": {"type": "string"},
                "timestamp": {"type": "string"},
                "transcript": {"type": "string"},
                "detected_language": {"type": "string"},
                "language_confidence": {"type": "number"},
                "classification": {"$ref": "#/definitions/message.Classification"},
                "processing_time_ms": {"type": "number"},
                "audio_duration_sec": {"type": "number"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "dunning API",
	Description:      "Recognizes and classifies debtor replies to collection calls in Russian and Kazakh.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
