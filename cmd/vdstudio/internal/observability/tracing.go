// Copyright (C) 2025 VisionDeploy AI (dev@visiondeploy.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability wires OpenTelemetry tracing for provisioning runs.
//
// Tracing is opt-in: with VDSTUDIO_OTLP_ENDPOINT unset the global tracer
// provider stays a no-op and span calls cost almost nothing. When set, spans
// export over OTLP/gRPC, one span per provisioning stage, so slow mirror
// downloads and source builds show up with real durations.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// EndpointEnvVar names the environment variable that enables tracing.
const EndpointEnvVar = "VDSTUDIO_OTLP_ENDPOINT"

// tracerName identifies this instrumentation scope.
const tracerName = "github.com/VisionDeployAI/VisionDeployStudio"

// Setup configures the global tracer provider.
//
// # Description
//
// Reads EndpointEnvVar; when unset, returns a no-op shutdown and leaves the
// default (no-op) provider in place. When set, installs an OTLP/gRPC
// exporting provider. The returned shutdown flushes pending spans and must
// be called before process exit.
//
// # Outputs
//
//   - func(context.Context) error: Shutdown hook (never nil)
//   - error: Exporter construction failure
func Setup(ctx context.Context, serviceVersion string) (func(context.Context) error, error) {
	endpoint := os.Getenv(EndpointEnvVar)
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := sdkresource.Merge(sdkresource.Default(), sdkresource.NewSchemaless(
		attribute.String("service.name", "vdstudio"),
		attribute.String("service.version", serviceVersion),
	))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	slog.Info("Tracing enabled", "endpoint", endpoint)

	return provider.Shutdown, nil
}

// Tracer returns the instrumentation tracer. Safe to call whether or not
// Setup enabled exporting.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartStage opens a span for one provisioning stage.
func StartStage(ctx context.Context, stage, envName string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "provision."+stage,
		trace.WithAttributes(
			attribute.String("environment.name", envName),
			attribute.String("provision.stage", stage),
		),
	)
}
