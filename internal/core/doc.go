// Package core is the import engine: it turns raw field groups into typed,
// linked values and commits each group to a record store as one unit.
//
// The package has no knowledge of file formats or transports. Parsers hand
// it [RawGroup] values through a [GroupSource]; stores plug in through the
// [Store], [Conn] and [Pool] interfaces.
//
// # Value Inference
//
// Raw tokens carry no type. [Infer] classifies each one by a fixed grammar,
// first match wins:
//
//	"42"                 String "42" (quotes force a string)
//	@<ssn>@123@<ssn>@    DeferredReference{ssn, Int 123}
//	@17@                 Link to record 17
//	TRUE                 Bool true
//	3.14D                Double 3.14
//	42 / 9999999999      Int / Long
//	3.14 / 1e300         Float / Double
//	anything else        String
//
// # Import Flow
//
// For each group the [Importer]:
//
//  1. Begins a transaction on its store connection
//  2. Resolves the target records: every record whose resolve key matches
//     one of the group's resolve values, or one new record
//  3. Infers every non-blank value, expanding deferred references into
//     links to the records they match
//  4. Writes each value into each target record; a refused write is a soft
//     error on the [ImportResult] and the transaction continues
//  5. Commits; a refused commit repeats the whole group under the
//     [RetryPolicy]
//
// [Service] runs this over whole files, one connection per file, with a
// bounded number of files in parallel.
//
// # Error Handling
//
// Store faults and malformed input stop a file and are returned wrapped
// with %w. Technical errors are mapped to user-facing messages with
// [MapError]:
//
//   - IMP001-IMP003: Import errors (commit conflict, malformed group, format)
//   - STORE001-STORE004: Store connectivity
//   - FILE001-FILE004: File errors (size, missing, empty)
//   - REQ001-REQ005: Request errors (busy, cancelled, timed out, rate limited, invalid)
package core
