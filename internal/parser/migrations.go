// File path: internal/parser/migrations.go
package parser

import (
	"regexp"

	"github.com/codeproof/codeproof/internal/model"
)

// Migration classification is pattern-based: the Schema facade calls are
// syntactically rigid enough that a token-shape match is as precise as an
// AST walk, and it keeps behavior identical between the extractor and the
// diff analyzer.
var (
	schemaCreateRe  = regexp.MustCompile(`Schema::create\s*\(\s*['"](\w+)['"]`)
	schemaTableRe   = regexp.MustCompile(`Schema::table\s*\(\s*['"](\w+)['"]`)
	schemaDropRe    = regexp.MustCompile(`Schema::drop(?:IfExists)?\s*\(\s*['"](\w+)['"]`)
	schemaRenameRe  = regexp.MustCompile(`Schema::rename\s*\(`)
	dropColumnRe    = regexp.MustCompile(`\$table->dropColumn\s*\(\s*['"](\w+)['"]`)
	dropColumnsRe   = regexp.MustCompile(`\$table->dropColumn\s*\(\s*\[([^\]]+)\]`)
	renameColumnRe  = regexp.MustCompile(`\$table->renameColumn\s*\(`)
	quotedElementRe = regexp.MustCompile(`['"](\w+)['"]`)
)

// extractMigration classifies one migration file and collects its
// destructive operations. The dominant operation follows severity order
// drop > rename > alter > create.
func extractMigration(path string, content []byte) *model.Migration {
	text := string(content)
	migration := &model.Migration{FilePath: path}

	if m := schemaCreateRe.FindStringSubmatch(text); m != nil {
		migration.TableName = m[1]
		migration.Operation = model.MigrationCreate
	} else if m := schemaTableRe.FindStringSubmatch(text); m != nil {
		migration.TableName = m[1]
		migration.Operation = model.MigrationAlter
	}

	for _, m := range schemaDropRe.FindAllStringSubmatch(text, -1) {
		migration.DestructiveOperations = append(migration.DestructiveOperations,
			model.DestructiveOp{Op: "DROP TABLE", Target: m[1]})
		if migration.TableName == "" {
			migration.TableName = m[1]
		}
	}
	for _, m := range dropColumnRe.FindAllStringSubmatch(text, -1) {
		migration.DestructiveOperations = append(migration.DestructiveOperations,
			model.DestructiveOp{Op: "DROP COLUMN", Target: m[1]})
	}
	for _, m := range dropColumnsRe.FindAllStringSubmatch(text, -1) {
		for _, quoted := range quotedElementRe.FindAllStringSubmatch(m[1], -1) {
			migration.DestructiveOperations = append(migration.DestructiveOperations,
				model.DestructiveOp{Op: "DROP COLUMN", Target: quoted[1]})
		}
	}
	for range schemaRenameRe.FindAllString(text, -1) {
		migration.DestructiveOperations = append(migration.DestructiveOperations,
			model.DestructiveOp{Op: "RENAME TABLE"})
	}
	for range renameColumnRe.FindAllString(text, -1) {
		migration.DestructiveOperations = append(migration.DestructiveOperations,
			model.DestructiveOp{Op: "RENAME COLUMN"})
	}

	migration.IsDestructive = len(migration.DestructiveOperations) > 0
	migration.Operation = dominantOperation(migration)
	return migration
}

func dominantOperation(m *model.Migration) model.MigrationOp {
	hasDrop := false
	hasRename := false
	for _, op := range m.DestructiveOperations {
		switch op.Op {
		case "DROP TABLE", "DROP COLUMN":
			hasDrop = true
		case "RENAME TABLE", "RENAME COLUMN":
			hasRename = true
		}
	}
	switch {
	case hasDrop:
		return model.MigrationDrop
	case hasRename:
		return model.MigrationRename
	case m.Operation != "":
		return m.Operation
	default:
		return model.MigrationAlter
	}
}
