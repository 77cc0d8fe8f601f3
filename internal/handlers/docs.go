package handlers

import (
	"encoding/json"
	"net/http"
)

type object = map[string]interface{}

func queryParam(name, description, typ string, required bool) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    required,
		"schema":      object{"type": typ},
	}
}

func pathParam(name, description, typ string) object {
	return object{
		"name":        name,
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      object{"type": typ},
	}
}

func jsonResponse(description string, schema object) object {
	return object{
		"description": description,
		"content": object{
			"application/json": object{"schema": schema},
		},
	}
}

func schemaRef(name string) object {
	return object{"$ref": "#/components/schemas/" + name}
}

var contextParams = []object{
	queryParam("crop", "Crop name, case-insensitive", "string", false),
	queryParam("variety", "Crop variety", "string", false),
	queryParam("state", "State or region", "string", false),
	queryParam("city", "City", "string", false),
	queryParam("extractor", "Laboratory extraction method, e.g. mehlich-1", "string", false),
	queryParam("stage", "Phenological stage", "string", false),
	queryParam("age_months", "Plant age in months", "number", false),
}

func withContext(params ...object) []object {
	return append(append([]object{}, params...), contextParams...)
}

var badRequest = jsonResponse("Invalid input", schemaRef("ErrorResponse"))

// OpenAPISpec returns the OpenAPI 3.0 specification for the Soil Platform API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Soil Platform API",
			"description": "Soil analysis evaluation: ideal range resolution per crop context and reading classification",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": object{
			"/api/evaluations": object{
				"post": object{
					"summary":     "Evaluate a soil analysis",
					"description": "Resolve the ideal range of every reading for the crop context and classify it",
					"requestBody": object{
						"required": true,
						"content": object{
							"application/json": object{"schema": schemaRef("EvaluationRequest")},
						},
					},
					"responses": object{
						"200": jsonResponse("Classified readings", schemaRef("Evaluation")),
						"400": badRequest,
					},
				},
			},
			"/api/ideal-ranges/{nutrient}": object{
				"get": object{
					"summary":     "Resolve one ideal range",
					"description": "Falls back to the default table when the reference store has no matching row",
					"parameters":  withContext(pathParam("nutrient", "Nutrient key, e.g. pH, P, K", "string")),
					"responses": object{
						"200": jsonResponse("Resolved range", schemaRef("ResolvedRange")),
						"400": badRequest,
					},
				},
			},
			"/api/ideal-ranges": object{
				"get": object{
					"summary":    "Resolve several ideal ranges",
					"parameters": withContext(queryParam("nutrients", "Comma-separated nutrient keys", "string", true)),
					"responses": object{
						"200": jsonResponse("Resolved ranges keyed by requested nutrient", object{
							"type": "object",
							"properties": object{
								"context": schemaRef("Context"),
								"ranges": object{
									"type":                 "object",
									"additionalProperties": schemaRef("ResolvedRange"),
								},
							},
						}),
						"400": badRequest,
					},
				},
			},
			"/api/profiles": object{
				"get": object{
					"summary":    "Resolve the crop profile",
					"parameters": contextParams,
					"responses": object{
						"200": jsonResponse("Profile with summary line", object{
							"type": "object",
							"properties": object{
								"profile": schemaRef("SoilProfile"),
								"summary": object{"type": "string", "example": "K:0.2–0.4 | P:10–30 | pH:5.5–6.5"},
							},
						}),
					},
				},
			},
			"/api/classify": object{
				"get": object{
					"summary": "Classify a value against a range",
					"parameters": []object{
						queryParam("value", "Measured value", "number", true),
						queryParam("min", "Ideal range lower bound", "number", true),
						queryParam("max", "Ideal range upper bound", "number", true),
						queryParam("mode", "range (0..100) or target (0..200)", "string", false),
						queryParam("high_color", "blue or violet for ABOVE", "string", false),
					},
					"responses": object{
						"200": jsonResponse("Classification", schemaRef("ClassificationResult")),
						"400": badRequest,
					},
				},
			},
			"/api/references": object{
				"get": object{
					"summary": "List reference rows",
					"parameters": []object{
						queryParam("page", "Page number (default: 1)", "integer", false),
						queryParam("limit", "Records per page (default: 100)", "integer", false),
					},
					"responses": object{
						"200": jsonResponse("Reference rows", object{
							"type": "object",
							"properties": object{
								"data":  object{"type": "array", "items": schemaRef("SoilReference")},
								"page":  object{"type": "integer"},
								"limit": object{"type": "integer"},
							},
						}),
					},
				},
			},
			"/api/references/{id}": object{
				"get": object{
					"summary":    "Get a reference row",
					"parameters": []object{pathParam("id", "Reference row ID", "integer")},
					"responses": object{
						"200": jsonResponse("Reference row", schemaRef("SoilReference")),
						"404": jsonResponse("Not found", schemaRef("ErrorResponse")),
					},
				},
			},
			"/api/docs": object{
				"get": object{
					"summary":   "Interactive API documentation",
					"responses": object{"200": object{"description": "Swagger UI page"}},
				},
			},
			"/health": object{
				"get": object{
					"summary":     "Health check",
					"description": "Reports degraded when the reference store is unreachable",
					"responses": object{
						"200": jsonResponse("API is running", object{
							"type": "object",
							"properties": object{
								"status": object{"type": "string", "enum": []string{"healthy", "degraded"}},
								"store":  object{"type": "string"},
							},
						}),
					},
				},
			},
			"/metrics": object{
				"get": object{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": object{
						"200": object{
							"description": "Prometheus metrics in text format",
							"content": object{
								"text/plain": object{"schema": object{"type": "string"}},
							},
						},
					},
				},
			},
		},
		"components": object{
			"schemas": object{
				"Context": object{
					"type": "object",
					"properties": object{
						"crop":       object{"type": "string"},
						"variety":    object{"type": "string"},
						"state":      object{"type": "string"},
						"city":       object{"type": "string"},
						"extractor":  object{"type": "string"},
						"stage":      object{"type": "string"},
						"age_months": object{"type": "number"},
					},
				},
				"EvaluationRequest": object{
					"type": "object",
					"properties": object{
						"context": schemaRef("Context"),
						"readings": object{
							"type": "array",
							"items": object{
								"type": "object",
								"properties": object{
									"key":   object{"type": "string"},
									"value": object{"type": "number"},
								},
							},
						},
					},
				},
				"ResolvedRange": object{
					"type": "object",
					"properties": object{
						"nutrient": object{"type": "string"},
						"min":      object{"type": "number"},
						"max":      object{"type": "number"},
						"unit":     object{"type": "string"},
						"source":   object{"type": "string", "enum": []string{"remote", "fallback"}},
					},
				},
				"ClassificationResult": object{
					"type": "object",
					"properties": object{
						"status":             object{"type": "string", "enum": []string{"BELOW", "IDEAL", "ABOVE"}},
						"normalized_percent": object{"type": "number"},
						"mode":               object{"type": "string"},
						"color":              object{"type": "string"},
					},
				},
				"Evaluation": object{
					"type": "object",
					"properties": object{
						"context": schemaRef("Context"),
						"results": object{
							"type": "array",
							"items": object{
								"type": "object",
								"properties": object{
									"nutrient":       object{"type": "string"},
									"value":          object{"type": "number"},
									"range":          schemaRef("ResolvedRange"),
									"status":         object{"type": "string"},
									"percent":        object{"type": "number"},
									"target_percent": object{"type": "number"},
									"color":          object{"type": "string"},
									"label":          object{"type": "string"},
									"advice":         object{"type": "string"},
									"scale": object{
										"type":       "object",
										"properties": object{"min": object{"type": "number"}, "max": object{"type": "number"}},
									},
									"distance": object{"type": "number", "description": "0 inside the range, up to 1 far from it"},
									"growth":   object{"type": "number", "description": "Plant indicator size, 0.1 to 0.5"},
								},
							},
						},
						"summary":      object{"type": "object", "additionalProperties": object{"type": "integer"}},
						"evaluated_at": object{"type": "string", "format": "date-time"},
					},
				},
				"SoilProfile": object{
					"type": "object",
					"properties": object{
						"crop":      object{"type": "string"},
						"variety":   object{"type": "string"},
						"state":     object{"type": "string"},
						"extractor": object{"type": "string"},
						"ideal": object{
							"type": "object",
							"additionalProperties": object{
								"type":     "array",
								"items":    object{"type": "number"},
								"minItems": 2,
								"maxItems": 2,
							},
						},
						"source": object{"type": "string"},
					},
				},
				"SoilReference": object{
					"type": "object",
					"properties": object{
						"id":             object{"type": "integer"},
						"nutrient":       object{"type": "string"},
						"crop":           object{"type": "string"},
						"variety":        object{"type": "string"},
						"extractor":      object{"type": "string"},
						"age_min_months": object{"type": "number", "nullable": true},
						"age_max_months": object{"type": "number", "nullable": true},
						"ideal_min":      object{"type": "number"},
						"ideal_max":      object{"type": "number"},
						"unit":           object{"type": "string", "nullable": true},
						"updated_at":     object{"type": "string", "format": "date-time"},
					},
				},
				"ErrorResponse": object{
					"type": "object",
					"properties": object{
						"error":   object{"type": "string"},
						"message": object{"type": "string"},
						"code":    object{"type": "integer"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
