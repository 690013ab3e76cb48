package copilot

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("scrapers/copilot")
var meter = otel.Meter("scrapers/copilot")
