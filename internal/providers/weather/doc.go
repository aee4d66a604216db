// Package weather provides the example weather tools exposed over RPC:
// get_weather (current conditions for a location) and get_forecast
// (multi-day outlook). Both are pure functions of their inputs backed by
// a synthetic data source.
package weather
