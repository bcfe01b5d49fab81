// Package store provides the policy configuration collaborator used by the
// loader.
//
// A Record is one named policy configuration: its registered type, its
// parameter bag, an active flag and a description. Composite records refer
// to their children by name inside the parameter bag, so stores hold a flat
// list and the tree is rebuilt at load time.
//
// Implementations:
//
//   - MemoryStore: in-process map, used by tests and the validate command
//   - FileStore: a YAML document with a top-level "policies" list
//   - SQLiteStore: a policy_configs table in a SQLite database
//   - GitStore: a FileStore over a file in a cloned Git repository
//
// File format:
//
//	policies:
//	  - name: root
//	    type: sequential
//	    config:
//	      policies: [auth, forward]
//	  - name: auth
//	    type: authenticate
//	    config:
//	      status: 401
//	  - name: forward
//	    type: forward
package store
