package trends

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("services/trends")
