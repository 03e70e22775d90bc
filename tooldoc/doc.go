// Package tooldoc renders tiered documentation for active tools. It backs
// the bridge's describe_tool and get_active_tools operations and keeps long
// schemas out of listings until a client asks for them.
//
// # Documentation Tiers
//
// Summary: the first line of the tool description, truncated.
//
// Schema: the summary plus the parameters derived from the input schema
// (name, type, description, required), annotations and a security summary
// read from the tool's _meta.
//
// # Error Handling
//
// ErrInvalidDetail is returned for unknown DetailLevel values.
package tooldoc
