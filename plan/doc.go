// Package plan builds and runs ordered chains of external commands.
//
// A Plan collects steps through Add or AddStep. Execute drains the collected
// steps into an independent batch, links them into a chain of continuations
// (last step first, so each continuation can hold the next one), and starts the
// chain in the background. Each continuation receives the previous command's
// outcome from the Runner, applies the error policy, runs its step's pre-logic
// and hands the command to the Runner with the next continuation as the
// completion callback.
//
// When a command fails, the failing step's own error handler decides whether
// the chain continues. A handler that returns an explicit true or false owns
// the decision and suppresses the execerror event; otherwise the plan-wide
// ContinueOnError default applies and execerror is published.
//
// Every round that drained at least one step ends with exactly one finish
// event. complete is published before finish only when every step ran and the
// last one succeeded.
package plan
