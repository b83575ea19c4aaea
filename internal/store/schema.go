package store

import (
	"context"
	"fmt"
)

// schemaStatements create the full schema in dependency order. Every
// statement is idempotent so EnsureSchema can run on every start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS categorias (
		id        SERIAL PRIMARY KEY,
		nome      VARCHAR(100) NOT NULL UNIQUE,
		descricao TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS produtos (
		id           SERIAL PRIMARY KEY,
		categoria_id INTEGER NOT NULL REFERENCES categorias(id),
		nome         VARCHAR(255) NOT NULL UNIQUE,
		descricao    TEXT,
		preco_base   DECIMAL(15,2) NOT NULL,
		preco_min    DECIMAL(15,2) NOT NULL,
		preco_max    DECIMAL(15,2) NOT NULL,
		ativo        BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_produtos_categoria ON produtos (categoria_id)`,
	`CREATE INDEX IF NOT EXISTS idx_produtos_nome ON produtos (nome)`,

	`CREATE TABLE IF NOT EXISTS transacoes (
		id                 SERIAL PRIMARY KEY,
		id_transacao       VARCHAR(50) NOT NULL,
		data_transacao     TIMESTAMP NOT NULL,
		cliente            VARCHAR(255) NOT NULL,
		produto            VARCHAR(255) NOT NULL,
		categoria          VARCHAR(100) NOT NULL,
		valor              DECIMAL(15,2) NOT NULL,
		status_pagamento   VARCHAR(50) NOT NULL,
		data_pagamento     TIMESTAMP,
		ano_transacao      INTEGER NOT NULL,
		mes_transacao      INTEGER NOT NULL,
		dia_semana         INTEGER,
		trimestre          INTEGER,
		arquivo_origem     VARCHAR(255) NOT NULL,
		data_processamento TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT uk_transacao_id UNIQUE (id_transacao),
		CONSTRAINT ck_valor_positivo CHECK (valor >= 0),
		CONSTRAINT ck_mes_valido CHECK (mes_transacao BETWEEN 1 AND 12),
		CONSTRAINT ck_dia_semana_valido CHECK (dia_semana BETWEEN 0 AND 6),
		CONSTRAINT ck_trimestre_valido CHECK (trimestre BETWEEN 1 AND 4)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transacoes_data ON transacoes (data_transacao)`,
	`CREATE INDEX IF NOT EXISTS idx_transacoes_cliente ON transacoes (cliente)`,
	`CREATE INDEX IF NOT EXISTS idx_transacoes_categoria ON transacoes (categoria)`,
	`CREATE INDEX IF NOT EXISTS idx_transacoes_produto ON transacoes (produto)`,
	`CREATE INDEX IF NOT EXISTS idx_transacoes_status ON transacoes (status_pagamento)`,
	`CREATE INDEX IF NOT EXISTS idx_transacoes_ano_mes ON transacoes (ano_transacao, mes_transacao)`,
	`CREATE INDEX IF NOT EXISTS idx_transacoes_ano_mes_data ON transacoes (ano_transacao, mes_transacao, data_transacao)`,
	`CREATE INDEX IF NOT EXISTS idx_transacoes_ano_mes_categoria_data ON transacoes (ano_transacao, mes_transacao, categoria, data_transacao)`,
	`CREATE INDEX IF NOT EXISTS idx_transacoes_ano_mes_status_data ON transacoes (ano_transacao, mes_transacao, status_pagamento, data_transacao)`,
	`CREATE INDEX IF NOT EXISTS idx_transacoes_id_transacao ON transacoes (id_transacao)`,

	`CREATE TABLE IF NOT EXISTS transacao_itens (
		id             SERIAL PRIMARY KEY,
		id_transacao   VARCHAR(50) NOT NULL REFERENCES transacoes(id_transacao),
		produto_id     INTEGER NOT NULL REFERENCES produtos(id),
		quantidade     INTEGER NOT NULL,
		valor_unitario DECIMAL(15,2) NOT NULL,
		valor_total    DECIMAL(15,2) NOT NULL,
		CONSTRAINT ck_item_quantidade CHECK (quantidade > 0),
		CONSTRAINT ck_item_valor_unitario CHECK (valor_unitario >= 0),
		CONSTRAINT ck_item_valor_total CHECK (valor_total >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_itens_transacao ON transacao_itens (id_transacao)`,
	`CREATE INDEX IF NOT EXISTS idx_itens_produto ON transacao_itens (produto_id)`,

	`CREATE TABLE IF NOT EXISTS logs_etl (
		id_log                   SERIAL PRIMARY KEY,
		data_execucao            TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		arquivo_processado       VARCHAR(255) NOT NULL,
		qtd_registros_lidos      INTEGER NOT NULL DEFAULT 0,
		qtd_registros_inseridos  INTEGER NOT NULL DEFAULT 0,
		qtd_registros_rejeitados INTEGER NOT NULL DEFAULT 0,
		qtd_duplicatas_ignoradas INTEGER NOT NULL DEFAULT 0,
		status_execucao          VARCHAR(20) NOT NULL,
		tempo_execucao_seg       DECIMAL(10,3),
		mensagem_erro            TEXT,
		detalhes                 JSON,
		arquivo_hash             VARCHAR(64),
		CONSTRAINT ck_status_valido CHECK
			(status_execucao IN ('SUCESSO', 'ERRO', 'PARCIAL', 'EM_ANDAMENTO'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_data ON logs_etl (data_execucao)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_status ON logs_etl (status_execucao)`,
	`CREATE INDEX IF NOT EXISTS idx_logs_arquivo ON logs_etl (arquivo_processado)`,

	`CREATE TABLE IF NOT EXISTS arquivos_processados (
		id                 SERIAL PRIMARY KEY,
		nome_arquivo       VARCHAR(255) NOT NULL UNIQUE,
		caminho_completo   VARCHAR(500) NOT NULL,
		tamanho_bytes      BIGINT,
		hash_arquivo       VARCHAR(64) NOT NULL,
		data_processamento TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		status             VARCHAR(20) NOT NULL DEFAULT 'PROCESSADO',
		id_log_etl         INTEGER REFERENCES logs_etl(id_log)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_arquivos_hash ON arquivos_processados (hash_arquivo)`,
	`CREATE INDEX IF NOT EXISTS idx_arquivos_nome ON arquivos_processados (nome_arquivo)`,

	// Read-only reporting views. Pure derived queries, never written to
	// by the loader.
	`CREATE OR REPLACE VIEW vw_resumo_mensal AS
		SELECT ano_transacao,
		       mes_transacao,
		       COUNT(*)                   AS qtd_transacoes,
		       SUM(valor)                 AS valor_total,
		       AVG(valor)                 AS ticket_medio
		FROM transacoes
		GROUP BY ano_transacao, mes_transacao`,

	`CREATE OR REPLACE VIEW vw_resumo_categorias AS
		SELECT categoria,
		       COUNT(*)   AS qtd_transacoes,
		       SUM(valor) AS valor_total,
		       AVG(valor) AS ticket_medio
		FROM transacoes
		GROUP BY categoria`,

	`CREATE OR REPLACE VIEW vw_resumo_status AS
		SELECT status_pagamento,
		       COUNT(*)   AS qtd_transacoes,
		       SUM(valor) AS valor_total
		FROM transacoes
		GROUP BY status_pagamento`,

	`CREATE OR REPLACE VIEW vw_top_produtos AS
		SELECT produto,
		       categoria,
		       COUNT(*)   AS qtd_transacoes,
		       SUM(valor) AS valor_total
		FROM transacoes
		GROUP BY produto, categoria
		ORDER BY valor_total DESC`,
}

// EnsureSchema creates every table, index, and view the pipeline and
// API depend on. Safe to call on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	s.log.Debug("schema ensured", "statements", len(schemaStatements))
	return nil
}
