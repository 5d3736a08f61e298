// Package main provides the movie catalog ingestion CLI.
//
// The run command walks a remote folder tree once and loads every record file into the
// catalog. The consume command loads records delivered as events from Kafka or SQS and
// serves health and metrics endpoints while it runs.
package main

func main() {
	Execute()
}
