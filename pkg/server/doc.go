// Package server implements the accessory's coordinator.
//
// The Coordinator owns every mutable piece of protocol state: the attribute
// table, the credential store and the per-connection authentication state.
// A single mutex serializes credential transitions, authenticated writes and
// telemetry refreshes so they never interleave. Long running work, such as
// forwarding a decrypted command to the inverter, runs after the mutex is
// released.
//
// Authenticated writes come in two shapes. Plain requiresAuth writes carry an
// auth.Envelope next to the value. Encrypted writes carry an
// auth.EncryptedPayload as the value itself; the coordinator picks the secret
// by the identity the payload claims:
//
//   - setup is sealed with the setup secret under credential.SetupID
//   - confirm is sealed with the pending invitation's secret
//   - everything else is sealed with a confirmed credential's secret
//
// A caller identity is only trusted after its envelope verified against
// that identity's own secret.
package server
