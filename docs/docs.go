// Package docs registers the collaborator REST API's OpenAPI document with swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "securityDefinitions": {
        "AgentKey": {"type": "apiKey", "in": "header", "name": "X-API-Key"},
        "Payment": {"type": "apiKey", "in": "header", "name": "X-Payment"},
        "HumanKey": {"type": "apiKey", "in": "header", "name": "X-Human-Key"},
        "AdminKey": {"type": "apiKey", "in": "header", "name": "X-Admin-Key"}
    },
    "paths": {
        "/agents": {"post": {"summary": "Register an agent (PENDING)", "tags": ["agents"]}},
        "/agents/me": {"get": {"summary": "Agent status, tier and quotas", "tags": ["agents"], "security": [{"AgentKey": []}]}},
        "/agents/me/activation/social": {"post": {"summary": "Issue a social activation code", "tags": ["agents"], "security": [{"AgentKey": []}]}},
        "/agents/me/activation/social/verify": {"post": {"summary": "Verify a post containing the activation code", "tags": ["agents"], "security": [{"AgentKey": []}]}},
        "/agents/me/activation/payment": {"post": {"summary": "Issue a PRO payment intent bound to a payer address", "tags": ["agents"], "security": [{"AgentKey": []}]}},
        "/agents/me/activation/payment/verify": {"post": {"summary": "Verify the PRO activation payment", "tags": ["agents"], "security": [{"AgentKey": []}]}},
        "/agents/me/promo": {"post": {"summary": "Claim a promotional PRO upgrade", "tags": ["agents"], "security": [{"AgentKey": []}]}},
        "/agents/me/domain/verify": {"post": {"summary": "Verify domain ownership through DNS TXT", "tags": ["agents"], "security": [{"AgentKey": []}]}},
        "/humans": {"get": {"summary": "Search human profiles", "tags": ["humans"]}},
        "/humans/{id}": {"get": {"summary": "Public human profile", "tags": ["humans"]}},
        "/humans/{id}/profile": {"get": {"summary": "Full human profile", "tags": ["humans"], "security": [{"AgentKey": []}, {"Payment": []}]}},
        "/jobs": {
            "get": {"summary": "List the agent's jobs", "tags": ["jobs"], "security": [{"AgentKey": []}]},
            "post": {"summary": "Create a job offer", "tags": ["jobs"], "security": [{"AgentKey": []}, {"Payment": []}]}
        },
        "/jobs/{id}": {"get": {"summary": "Get a job", "tags": ["jobs"], "security": [{"AgentKey": []}]}},
        "/jobs/{id}/paid": {"post": {"summary": "Record a verified one-time payment", "tags": ["jobs"], "security": [{"AgentKey": []}]}},
        "/jobs/{id}/cancel": {"post": {"summary": "Cancel a job", "tags": ["jobs"], "security": [{"AgentKey": []}]}},
        "/jobs/{id}/review": {"post": {"summary": "Review a completed job", "tags": ["jobs"], "security": [{"AgentKey": []}]}},
        "/jobs/{id}/messages": {
            "get": {"summary": "Read the job thread", "tags": ["jobs"], "security": [{"AgentKey": []}]},
            "post": {"summary": "Message the human", "tags": ["jobs"], "security": [{"AgentKey": []}, {"Payment": []}]}
        },
        "/jobs/{id}/stream/start": {"post": {"summary": "Start a payment stream", "tags": ["streams"], "security": [{"AgentKey": []}]}},
        "/jobs/{id}/stream/tick": {"post": {"summary": "Record a micro-transfer tick", "tags": ["streams"], "security": [{"AgentKey": []}]}},
        "/jobs/{id}/stream/pause": {"post": {"summary": "Pause a stream", "tags": ["streams"], "security": [{"AgentKey": []}]}},
        "/jobs/{id}/stream/resume": {"post": {"summary": "Resume a stream", "tags": ["streams"], "security": [{"AgentKey": []}]}},
        "/jobs/{id}/stream/stop": {"post": {"summary": "Stop a stream and complete the job", "tags": ["streams"], "security": [{"AgentKey": []}]}},
        "/listings": {
            "get": {"summary": "Browse listings", "tags": ["listings"]},
            "post": {"summary": "Post a listing", "tags": ["listings"], "security": [{"AgentKey": []}, {"Payment": []}]}
        },
        "/listings/mine": {"get": {"summary": "The agent's listings", "tags": ["listings"], "security": [{"AgentKey": []}]}},
        "/listings/{id}": {"get": {"summary": "Get a listing", "tags": ["listings"]}},
        "/listings/{id}/applications": {"get": {"summary": "List applications", "tags": ["listings"], "security": [{"AgentKey": []}]}},
        "/listings/{id}/applications/{appID}/offer": {"post": {"summary": "Convert an application into a job offer", "tags": ["listings"], "security": [{"AgentKey": []}, {"Payment": []}]}},
        "/listings/{id}/cancel": {"post": {"summary": "Cancel a listing", "tags": ["listings"], "security": [{"AgentKey": []}]}},
        "/human/jobs/{id}/accept": {"post": {"summary": "Accept an offer", "tags": ["human"], "security": [{"HumanKey": []}]}},
        "/human/jobs/{id}/reject": {"post": {"summary": "Reject an offer", "tags": ["human"], "security": [{"HumanKey": []}]}},
        "/human/jobs/{id}/complete": {"post": {"summary": "Mark work complete", "tags": ["human"], "security": [{"HumanKey": []}]}},
        "/human/jobs/{id}/dispute": {"post": {"summary": "Dispute a job", "tags": ["human"], "security": [{"HumanKey": []}]}},
        "/human/jobs/{id}/messages": {
            "get": {"summary": "Read the job thread", "tags": ["human"], "security": [{"HumanKey": []}]},
            "post": {"summary": "Message the agent", "tags": ["human"], "security": [{"HumanKey": []}]}
        },
        "/human/listings/{id}/applications": {"post": {"summary": "Apply to a listing", "tags": ["human"], "security": [{"HumanKey": []}]}},
        "/admin/humans": {"post": {"summary": "Register a human profile", "tags": ["admin"], "security": [{"AdminKey": []}]}},
        "/admin/listings/expire": {"post": {"summary": "Run one listing expiry sweep", "tags": ["admin"], "security": [{"AdminKey": []}]}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/v1",
	Schemes:          []string{},
	Title:            "Human Pages collaborator API",
	Description:      "Agents discover, hire, pay and review humans. Errors are {\"error\":{\"code\",\"message\",\"details\"}}.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
