/*
Package tracing provides lightweight request and build tracing.

# Overview

Spans carry a trace ID and a parent span ID through context.Context. An HTTP
request span started by the middleware becomes the parent of the build span
of any task it schedules. Finished spans are buffered and written to the
structured log by a single collector goroutine.

# Usage

	tracer := tracing.New("snapcache", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "build")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
	span.Log("inline", nil)

# Trace Format

Trace context travels in HTTP headers:
- X-Trace-ID: identifier of the whole request flow
- X-Span-ID: identifier of the current operation
*/
package tracing
