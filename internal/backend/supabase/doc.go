// Package supabase implements the backend contract against a hosted
// backend-as-a-service over HTTP.
//
// One Client serves every part of the contract:
//
//	/auth/v1/token, /auth/v1/signup, /auth/v1/logout   Auth
//	/auth/v1/admin/users/{id}                           Auth.DeleteIdentity (service key)
//	/auth/v1/admin/users                                IdentityAdmin (service key)
//	/rest/v1/{table}                                    Rows
//	/rest/v1/rpc/{name}                                 Procedures
//	/storage/v1/object/...                              Objects
//
// Every request carries the anon key in the apikey header. The Authorization
// header carries the signed-in session's access token when there is one and
// the anon key otherwise. Expired sessions are refreshed on first use; a
// rejected refresh token clears the stored session.
package supabase
