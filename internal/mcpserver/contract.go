package mcpserver

// DraftRecordFormat describes the record keys the approval workflow reads and
// writes.
const DraftRecordFormat = `# Draft Record Format

Records are JSON objects keyed by field name. Tenant-custom fields carry an
` + "`__a`" + ` suffix; field lookups also try ` + "`_a`" + ` and the snake_case form of
camelCase names.

## Draft record (object ` + "`drafts__a`" + ` or ` + "`drafts`" + `)

| Key | Meaning |
|---|---|
| ` + "`approved__a`" + ` | approval flag: "Yes", true or "true" mean approved; anything else does not |
| ` + "`Client_name__a`" + ` | id of the client record to update (required) |
| ` + "`scope__a`" + ` | scope text copied to the client |
| ` + "`address__a`" + ` | address text copied to the client |

## Client record (table ` + "`clients__a`" + `)

| Key | Written value |
|---|---|
| ` + "`scope__a`" + ` | the draft's scope, when present |
| ` + "`address__a`" + ` | the draft's address, when present |
| ` + "`status__a`" + ` | always "draft approved" |
| ` + "`updated_by`" + ` | acting user, when known |

## Outcomes

An approval with no client id, or with neither scope nor address, is skipped
without error. Drafts are looked up in the first 1000 records of their object.
`
