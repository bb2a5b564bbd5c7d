// Package service contains the application use cases that sit between the
// HTTP API and the stores in internal/store.
//
// LedgerService exposes balances, top-ups and the transaction log, and
// checks that a balance still matches its log. UserService registers users
// (together with their ledger account), authenticates them and links a
// Telegram chat for result push. Task submission lives in the dispatch
// subpackage, which needs both the ledger and the queue.
//
// Services receive their stores through constructors and use a
// store.Transactor whenever one operation writes to more than one table.
// Store and domain sentinel errors are passed through wrapped so the API
// layer can map them with errors.Is.
package service
