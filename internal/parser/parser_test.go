// File path: internal/parser/parser_test.go
package parser

import (
	"context"
	"strings"
	"testing"

	"github.com/codeproof/codeproof/internal/model"
)

const userModelSource = `<?php

namespace App\Models;

/**
 * Application user.
 */
class User
{
    const STATUS_ACTIVE = 'active';

    private static function hashPassword($password, $salt)
    {
        return hash('sha256', $salt . $password);
    }

    /**
     * Whether the account may log in.
     */
    public function isActive()
    {
        return $this->status === self::STATUS_ACTIVE;
    }
}

function helper_format($value)
{
    return trim($value);
}
`

func extractTestSymbols(t *testing.T, path, source string) []model.Symbol {
	t.Helper()
	extractor := NewExtractor()
	result, err := extractor.ExtractFile(context.Background(), path, []byte(source))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	return result.Symbols
}

func findSymbol(symbols []model.Symbol, qualified string) *model.Symbol {
	for i := range symbols {
		if symbols[i].QualifiedName == qualified {
			return &symbols[i]
		}
	}
	return nil
}

func TestSymbolExtraction(t *testing.T) {
	symbols := extractTestSymbols(t, "app/Models/User.php", userModelSource)

	class := findSymbol(symbols, `App\Models\User`)
	if class == nil {
		t.Fatalf("class symbol missing; got %+v", symbols)
	}
	if class.Kind != model.KindClass {
		t.Errorf("class kind = %q", class.Kind)
	}
	if class.Docstring == "" {
		t.Errorf("class docstring missing")
	}

	method := findSymbol(symbols, `App\Models\User::isActive`)
	if method == nil {
		t.Fatalf("method symbol missing")
	}
	if method.Kind != model.KindMethod {
		t.Errorf("method kind = %q", method.Kind)
	}
	if method.ParentSymbol != `App\Models\User` {
		t.Errorf("parent = %q", method.ParentSymbol)
	}
	if method.Visibility != "public" {
		t.Errorf("visibility = %q", method.Visibility)
	}
	if method.IsStatic {
		t.Errorf("isActive should not be static")
	}
	if method.Docstring == "" {
		t.Errorf("method docstring missing")
	}

	hash := findSymbol(symbols, `App\Models\User::hashPassword`)
	if hash == nil {
		t.Fatalf("hashPassword symbol missing")
	}
	if !hash.IsStatic || hash.Visibility != "private" {
		t.Errorf("hashPassword modifiers = %q static=%v", hash.Visibility, hash.IsStatic)
	}
	if hash.Signature == "" {
		t.Errorf("signature missing")
	}

	constant := findSymbol(symbols, `App\Models\User::STATUS_ACTIVE`)
	if constant == nil {
		t.Fatalf("constant symbol missing")
	}
	if constant.Kind != model.KindConstant {
		t.Errorf("constant kind = %q", constant.Kind)
	}

	fn := findSymbol(symbols, `App\Models\helper_format`)
	if fn == nil {
		t.Fatalf("function symbol missing")
	}
	if fn.Kind != model.KindFunction {
		t.Errorf("function kind = %q", fn.Kind)
	}
}

func TestSymbolLineSpans(t *testing.T) {
	symbols := extractTestSymbols(t, "app/Models/User.php", userModelSource)
	for _, s := range symbols {
		if s.StartLine <= 0 || s.EndLine < s.StartLine {
			t.Errorf("%s: invalid span %d-%d", s.QualifiedName, s.StartLine, s.EndLine)
		}
	}
}

func TestSearchTextComposition(t *testing.T) {
	symbols := extractTestSymbols(t, "app/Models/User.php", userModelSource)
	method := findSymbol(symbols, `App\Models\User::isActive`)
	if method == nil {
		t.Fatalf("method symbol missing")
	}
	for _, part := range []string{"isActive", `App\Models\User::isActive`} {
		if !strings.Contains(method.SearchText, part) {
			t.Errorf("search_text missing %q: %q", part, method.SearchText)
		}
	}
}

func TestNonPHPFileIgnored(t *testing.T) {
	extractor := NewExtractor()
	result, err := extractor.ExtractFile(context.Background(), "README.md", []byte("# readme"))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(result.Symbols) != 0 || len(result.Routes) != 0 {
		t.Errorf("non-PHP files must be ignored")
	}
}
