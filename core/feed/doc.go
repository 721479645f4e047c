// Package feed implements the agent position/status feed carried by the bus.
//
// One message per line: "<topic> <agent_id> <json_payload>". Only the first
// two whitespace boundaries separate fields, so the JSON payload may itself
// contain spaces.
package feed
