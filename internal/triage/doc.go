// Package triage drives the automated analysis of support tickets. It
// defines the Workflow (orchestration, failure absorption, ticket writes),
// the Engine (retry-wrapped LLM calls with schema validation), the
// Provider interface and its deterministic Mock, and the Verdict model.
package triage
