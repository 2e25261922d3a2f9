// Package environment carries the deployment stage through config, request
// contexts and log records.
package environment
