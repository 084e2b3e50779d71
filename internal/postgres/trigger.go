package postgres

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/jackc/pgx/v5"

	"shoveld/internal/codec"
	"shoveld/internal/model"
)

// InstallTrigger implements §4.F's install_trigger: drop any existing
// trigger of this name on the table, then create a fresh one firing
// AFTER INSERT OR UPDATE OF <update_columns> OR DELETE, passing the
// queue name, the encoded primary-key list, the encoded column list,
// and the configuration's version fingerprint as positional arguments
// to the schema's log() function (P3, P4).
//
// Always dropping and recreating, rather than trying to detect whether
// the existing trigger already matches, keeps this idempotent under
// concurrent retries without needing to introspect pg_trigger's stored
// argument bytes.
func InstallTrigger(ctx context.Context, tx pgx.Tx, schema, triggerName, queueName string, table model.Table, version string) error {
	if err := dropTriggerIfExists(ctx, tx, triggerName, table); err != nil {
		return err
	}

	pkeyArg, err := encodeArg(table.PrimaryKeys)
	if err != nil {
		return fmt.Errorf("encode primary key argument: %w", err)
	}
	columnsArg, err := encodeArg(table.UpdateColumns())
	if err != nil {
		return fmt.Errorf("encode column argument: %w", err)
	}

	qualifiedTable := pgx.Identifier{table.Schema, table.Name}.Sanitize()
	fn := pgx.Identifier{schema, "log"}.Sanitize()
	trigger := pgx.Identifier{triggerName}.Sanitize()
	updateOf := quotedColumnList(table.UpdateColumns())

	stmt := fmt.Sprintf(
		`CREATE TRIGGER %s AFTER INSERT OR UPDATE OF %s OR DELETE ON %s
FOR EACH ROW EXECUTE PROCEDURE %s(%s, %s, %s, %s)`,
		trigger, updateOf, qualifiedTable, fn,
		quoteLiteral(queueName), quoteLiteral(pkeyArg), quoteLiteral(columnsArg), quoteLiteral(version),
	)

	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("install trigger %s on %s: %w", triggerName, table.QualifiedName(), err)
	}
	return nil
}

// DropTrigger implements §4.F's drop_trigger: a plain DROP TRIGGER,
// fatal if the trigger is missing. Callers (drop_set, update_set's
// removed-table cleanup) are expected to know from the previously stored
// configuration whether the trigger exists; a missing trigger here means
// the database has drifted from what the coordination store believes,
// which I3 treats as a hard failure rather than something to paper over.
func DropTrigger(ctx context.Context, tx pgx.Tx, schema, triggerName string, table model.Table) error {
	qualifiedTable := pgx.Identifier{table.Schema, table.Name}.Sanitize()
	trigger := pgx.Identifier{triggerName}.Sanitize()

	stmt := fmt.Sprintf(`DROP TRIGGER %s ON %s`, trigger, qualifiedTable)
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("drop trigger %s on %s: %w", triggerName, table.QualifiedName(), err)
	}
	return nil
}

// dropTriggerIfExists is InstallTrigger's internal pre-drop: replacing a
// trigger that may or may not already exist is the one place §4.F
// tolerates a missing trigger ("drops the previous trigger... if
// present").
func dropTriggerIfExists(ctx context.Context, tx pgx.Tx, triggerName string, table model.Table) error {
	qualifiedTable := pgx.Identifier{table.Schema, table.Name}.Sanitize()
	trigger := pgx.Identifier{triggerName}.Sanitize()

	stmt := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, trigger, qualifiedTable)
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("drop trigger %s on %s: %w", triggerName, table.QualifiedName(), err)
	}
	return nil
}

// encodeArg canonically encodes a string list and base64s it, so it can
// travel as a single SQL text literal argument to the trigger function
// (TG_ARGV entries are text) and be decoded back with codec.DecodeStrings
// after unwrapping the base64 layer.
func encodeArg(ss []string) (string, error) {
	b, err := codec.EncodeStrings(ss)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// quotedColumnList renders cols as a comma-separated list of quoted
// identifiers for use in an "UPDATE OF" clause.
func quotedColumnList(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += pgx.Identifier{c}.Sanitize()
	}
	return out
}

// quoteLiteral renders s as a single-quoted SQL string literal, escaping
// embedded quotes. Trigger arguments are fixed by this package (queue
// names, base64 payloads, version fingerprints) and never carry
// arbitrary user input, but literals are still escaped defensively since
// pgx has no parameterized-argument form for CREATE TRIGGER.
func quoteLiteral(s string) string {
	escaped := ""
	for _, r := range s {
		if r == '\'' {
			escaped += "''"
		} else {
			escaped += string(r)
		}
	}
	return "'" + escaped + "'"
}
