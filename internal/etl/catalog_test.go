package etl

import (
	"errors"
	"testing"
)

const sampleCatalog = `categoria;categoria_descricao;produto;descricao;preco_base;preco_min;preco_max;ativo
Eletrônicos;Aparelhos e acessórios;Notebook;Notebook 15pol;3500,00;2999,00;4200,00;1
Eletrônicos;Aparelhos e acessórios;Fone;Fone bluetooth;199,90;;;true
Móveis;;Mesa;;450,00;400,00;600,00;nao
`

func TestReadCatalogFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "catalogo.csv", sampleCatalog)

	entries, err := ReadCatalogFile(path)
	if err != nil {
		t.Fatalf("ReadCatalogFile: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	first := entries[0]
	if first.Category != "Eletrônicos" || first.Product != "Notebook" {
		t.Errorf("first = %+v", first)
	}
	if first.BasePrice.String() != "3500" || first.MinPrice.String() != "2999" {
		t.Errorf("prices = %s/%s", first.BasePrice, first.MinPrice)
	}
	if !first.Active {
		t.Error("first should be active")
	}

	// missing min/max fall back to the base price
	second := entries[1]
	if !second.MinPrice.Equal(second.BasePrice) || !second.MaxPrice.Equal(second.BasePrice) {
		t.Errorf("min/max = %s/%s, want base %s", second.MinPrice, second.MaxPrice, second.BasePrice)
	}

	if entries[2].Active {
		t.Error("third entry marked ativo=nao should be inactive")
	}
}

func TestReadCatalogFile_Faults(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing required column",
			content: "categoria;produto\nA;B\n",
		},
		{
			name:    "bad base price",
			content: "categoria;produto;preco_base\nA;B;free\n",
		},
		{
			name:    "min above max",
			content: "categoria;produto;preco_base;preco_min;preco_max\nA;B;100,00;200,00;150,00\n",
		},
		{
			name:    "empty product",
			content: "categoria;produto;preco_base\nA; ;100,00\n",
		},
		{
			name:    "no entries",
			content: "categoria;produto;preco_base\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name+".csv", tt.content)
			_, err := ReadCatalogFile(path)
			var exErr *ExtractionError
			if !errors.As(err, &exErr) {
				t.Fatalf("want *ExtractionError, got %v", err)
			}
		})
	}
}
