// Package report turns a sweep Report into serialized output.
//
// Writers register themselves by format name in init blocks; callers
// dispatch through Write and never switch on the format themselves.
package report
