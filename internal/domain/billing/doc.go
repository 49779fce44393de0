// Package billing is the billing ledger bounded context.
//
// Aggregates:
//   - Invoice: line items, totals and the invoice state machine
//   - Claim: insurance claim with a tagged adjudication Outcome
//   - Payment: captured payments and refunds
//
// An invoice and its claims and payments form one consistency domain.
// Reconcile derives the invoice's paid amount, balance and status from
// the claims and payments that belong to it.
package billing
