// Package vendors implements the vendor workflow: a customer files a single
// vendor request, an admin approves or rejects it, and approval promotes the
// user to the vendor role and opens a storefront profile. The approval write
// spans the identity provider and two local records, so it runs as ordered
// steps with compensation instead of best-effort sequential calls.
package vendors
