// Package contact is the trust directory: per-peer records of how a key was
// established and what to call it. Records are write-once; only rename and
// explicit removal mutate them.
package contact
