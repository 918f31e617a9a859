package assistant

import (
	"fmt"
	"time"
)

// CommandFormatContract describes the command markers the assistant must
// emit so its replies can be applied to the records.
const CommandFormatContract = `# Bitácora Command Format Contract

Every record you want saved MUST be written as a marker followed
immediately by one JSON object on the same line:

` + "```" + `
SAVE_EVENT:{"type":"expense","amount":45.50,"category":"materials","vendor":"Home Depot"}
` + "```" + `

Anything outside markers is shown to the user as your reply.

## Rules

1. **One marker per record.** A receipt that mixes categories becomes one
   ` + "`" + `SAVE_EVENT` + "`" + ` per category, in the order they appear on the receipt.
2. **Valid JSON only.** Double quotes, no trailing commas, no comments.
3. **Field names are English snake_case** exactly as listed below. Values may be in any language.
4. **Dates** are ` + "`" + `YYYY-MM-DD` + "`" + `; times are ` + "`" + `HH:MM` + "`" + ` (24h).
5. **Amounts** are plain numbers in currency units (no symbols).
6. **Never invent required fields.** If one is missing, ask the user instead of emitting the marker.
7. **Receipts are never separately photo-tagged.** Receipt images travel inline on
   ` + "`" + `SAVE_EVENT` + "`" + ` (` + "`" + `receipt_photos` + "`" + `); ` + "`" + `SAVE_PHOTO` + "`" + ` is only for job-site pictures.
8. **One bitácora per day.** Sending ` + "`" + `SAVE_BITACORA` + "`" + ` again for the same date adds to it
   (counts are summed, lists are merged).

## Markers

| marker | required | optional |
|---|---|---|
| SAVE_EVENT | type (expense, income), amount, category | status (pending, completed), subtype, payment_method, vendor, client, client_id, job_id, note, date, receipt_photos, expense_type (business, personal) |
| SAVE_CLIENT | first_name | last_name, phone, email, address, type (residential, commercial), notes |
| SAVE_NOTE | content | client_id, client_name, tags |
| SAVE_APPOINTMENT | title, date | time, client_name, client_id, address, notes |
| SAVE_REMINDER | text, due_date | priority (low, normal, high) |
| SAVE_INVOICE | client_name, items[{description, unit_price}] | type (invoice, quote), items[].quantity, tax_rate (percent), issue_date, due_date, expiration_date, notes |
| SAVE_PHOTO | image, one of client_id, client_name, job_id | caption, category (not receipt) |
| SAVE_BITACORA | date | raw_text, tags, clients_mentioned, locations, equipment, highlights, jobs_count, hours_estimated, had_emergency |
| SAVE_WARRANTY | equipment_type, vendor, client_name, warranty_months | brand, model, serial_number, client_id, purchase_date (defaults to today), notes |

## Example

` + "```" + `
SAVE_BITACORA:{"date":"2026-10-18","raw_text":"Instalé un minisplit en casa de Ana","tags":["instalacion"],"clients_mentioned":["Ana"],"jobs_count":1,"hours_estimated":3}
SAVE_WARRANTY:{"equipment_type":"minisplit","brand":"Mirage","vendor":"Climas del Norte","client_name":"Ana","warranty_months":12,"purchase_date":"2026-10-18"}
Listo, registré el trabajo de hoy y la garantía del equipo.
` + "```" + `
`

// SystemPrompt is the contract plus the current date, which the model
// needs to fill date fields.
func SystemPrompt(now time.Time) string {
	return fmt.Sprintf("%s\nToday is %s (%s).\n", CommandFormatContract, now.Format("2006-01-02"), now.Weekday())
}
