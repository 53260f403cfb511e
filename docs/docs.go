// Package docs holds the swagger document served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Complaint Triage API",
    "description": "Classification, assignment and workload balancing for municipal complaints",
    "version": "1.0"
  },
  "basePath": "/",
  "securityDefinitions": {
    "AdminKey": {"type": "apiKey", "in": "header", "name": "X-Admin-Key"}
  },
  "paths": {
    "/healthz": {"get": {"tags": ["health"], "summary": "Database health", "responses": {"200": {"description": "ok"}, "503": {"description": "database unavailable"}}}},
    "/metrics": {"get": {"tags": ["health"], "summary": "Prometheus metrics", "produces": ["text/plain"], "responses": {"200": {"description": "metrics"}}}},
    "/api/complaints/{id}": {"get": {"tags": ["complaints"], "summary": "Complaint with audit trail",
      "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
      "responses": {"200": {"description": "complaint and audit entries"}, "404": {"description": "not found"}}}},
    "/api/complaints/{id}/assign": {"post": {"tags": ["complaints"], "summary": "Assign or reassign a complaint", "security": [{"AdminKey": []}],
      "parameters": [
        {"name": "id", "in": "path", "required": true, "type": "string"},
        {"name": "payload", "in": "body", "required": true, "schema": {"type": "object",
          "required": ["staff_id", "operator", "reason"],
          "properties": {"staff_id": {"type": "string"}, "operator": {"type": "string"}, "reason": {"type": "string"}, "enforce_capacity": {"type": "boolean"}}}}
      ],
      "responses": {"200": {"description": "assignment decision"}, "400": {"description": "validation failed"}, "404": {"description": "not found"}, "409": {"description": "closed, at capacity or changed concurrently"}}}},
    "/api/staff": {"get": {"tags": ["staff"], "summary": "Active staff with workload tier",
      "parameters": [{"name": "department", "in": "query", "type": "string"}],
      "responses": {"200": {"description": "staff list"}}}},
    "/api/scheduler/status": {"get": {"tags": ["automation"], "summary": "Scheduler status and run history", "responses": {"200": {"description": "status"}}}},
    "/api/runs/latest": {"get": {"tags": ["runs"], "summary": "Latest automation run",
      "parameters": [{"name": "kind", "in": "query", "type": "string", "enum": ["sweep", "rebalance"]}],
      "responses": {"200": {"description": "run"}, "404": {"description": "no runs"}}}},
    "/api/process": {"post": {"tags": ["automation"], "summary": "Process pending complaints", "security": [{"AdminKey": []}],
      "parameters": [{"name": "max_items", "in": "query", "type": "integer"}],
      "responses": {"200": {"description": "sweep result"}, "409": {"description": "already running"}}}},
    "/api/rebalance": {"post": {"tags": ["automation"], "summary": "Rebalance workload", "security": [{"AdminKey": []}],
      "parameters": [{"name": "payload", "in": "body", "schema": {"type": "object", "properties": {"department": {"type": "string"}}}}],
      "responses": {"200": {"description": "rebalance result"}, "202": {"description": "deferred behind a running pass"}}}},
    "/api/debug/classify": {"post": {"tags": ["debug"], "summary": "Classify text without persisting", "security": [{"AdminKey": []}],
      "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"type": "object",
        "properties": {"title": {"type": "string"}, "description": {"type": "string"}, "images": {"type": "array", "items": {"type": "string"}}, "allow_ai": {"type": "boolean"}}}}],
      "responses": {"200": {"description": "classification, priority breakdown and department"}}}},
    "/api/debug/selection": {"get": {"tags": ["debug"], "summary": "Rank eligible staff", "security": [{"AdminKey": []}],
      "parameters": [
        {"name": "complaint_id", "in": "query", "type": "string"},
        {"name": "category", "in": "query", "type": "string"},
        {"name": "priority", "in": "query", "type": "string"}
      ],
      "responses": {"200": {"description": "selection with ranked candidates"}}}}
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
