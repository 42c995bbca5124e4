// Package shell contains client-side plumbing shared by the example
// applications, most notably retry logic for group registrations that
// lose the race for the next group number.
package shell
