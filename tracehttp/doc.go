// Package tracehttp connects a tracectx.Engine to HTTP traffic.
//
// Middleware continues or seeds a trace for every inbound request, echoes
// the context in the response headers and ends the request span when the
// handler returns. Instrument does the outbound half for a resty client:
// each call made with a traced context gets a child span and a traceparent
// header.
//
//	engine := tracectx.New()
//	router := chi.NewRouter()
//	router.Use(tracehttp.Middleware(engine, tracehttp.WithLogger(logger)))
//
//	client := tracehttp.Instrument(resty.New(), engine)
//	resp, err := client.R().SetContext(r.Context()).Post(paymentURL)
package tracehttp
