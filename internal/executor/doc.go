// Package executor runs job workloads under a dedicated unprivileged OS
// identity.
//
// The service never runs a workload as itself. A Spawner starts the process
// as the sandbox identity of a single DelegationRule; SudoSpawner does so
// through a non-interactive sudo rule and refuses every other target. Each
// workload gets its own process group so that timeout, output limits and
// session close can terminate it together with its children. Descendants
// that leave the group are followed through /proc and killed with it.
//
// Executor turns a validated JobSpec into a Handle: an ordered stream of
// output chunks followed by exactly one result.
package executor
