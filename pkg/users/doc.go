// Package users implements the account lifecycle: registration against the
// identity provider with a mirrored local record, login and token refresh,
// email verification, password reset and change, and the administrative
// operations over user records. The identity provider stays the source of
// truth for credentials; the local store carries platform-side state such as
// roles, verification status, and soft deletion.
package users
