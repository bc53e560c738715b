// Package model defines the workflow domain: the Workflow/Node/Edge graph
// structure, per-kind node configurations, parsed expressions and the
// references they carry, node and run statuses, declared output schemas,
// the error taxonomy, and the JSON document codec.
//
// Everything downstream (validator, resolver, scheduler, stores, servers)
// operates on these types; nothing here executes anything.
package model
