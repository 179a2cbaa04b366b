package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InitSchema creates all required database tables if they don't exist.
// This is called on API startup to ensure the database is ready.
func InitSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := db.ExecContext(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

-- Users are external to the core; the send pipeline only reads them.
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email VARCHAR(255) UNIQUE NOT NULL,
	name VARCHAR(255),
	created_at TIMESTAMPTZ(6) DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS domains (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name VARCHAR(255) NOT NULL,
	txt_verified BOOLEAN DEFAULT false,
	created_at TIMESTAMPTZ(6) DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_domains_user_name ON domains(user_id, name);

CREATE TABLE IF NOT EXISTS domain_api_keys (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	domain_id UUID NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
	name VARCHAR(255),
	key_hash VARCHAR(64) UNIQUE NOT NULL,
	is_active BOOLEAN DEFAULT true,
	last_used_at TIMESTAMPTZ(6),
	created_at TIMESTAMPTZ(6) DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_domain_api_keys_hash ON domain_api_keys(key_hash);

CREATE TABLE IF NOT EXISTS user_billing (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID UNIQUE NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	email_limit INT NOT NULL DEFAULT 10000,
	email_used INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ(6) DEFAULT NOW(),
	updated_at TIMESTAMPTZ(6) DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS email_templates (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	slug VARCHAR(255) NOT NULL,
	subject TEXT NOT NULL,
	html_content TEXT NOT NULL,
	is_active BOOLEAN DEFAULT true,
	created_at TIMESTAMPTZ(6) DEFAULT NOW(),
	updated_at TIMESTAMPTZ(6) DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_email_templates_user_slug ON email_templates(user_id, slug);

CREATE TABLE IF NOT EXISTS email_template_variables (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	template_id UUID NOT NULL REFERENCES email_templates(id) ON DELETE CASCADE,
	name VARCHAR(255) NOT NULL,
	default_value TEXT
);
CREATE INDEX IF NOT EXISTS idx_email_template_variables_template ON email_template_variables(template_id);

-- id is time-sortable (see internal/idgen), so createdAt-ordered scans can
-- use a plain id index instead of a separate timestamp one where it matters.
CREATE TABLE IF NOT EXISTS email_events (
	id VARCHAR(40) PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	message_id VARCHAR(255) NOT NULL,
	event_type VARCHAR(50) NOT NULL,
	recipient_email VARCHAR(255) NOT NULL,
	sending_domain VARCHAR(255),
	subject TEXT,
	metadata JSONB DEFAULT '{}',
	ip_address VARCHAR(45),
	user_agent VARCHAR(500),
	created_at TIMESTAMPTZ(6) DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_email_events_message ON email_events(message_id);
CREATE INDEX IF NOT EXISTS idx_email_events_user ON email_events(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_email_events_recipient ON email_events(recipient_email);

CREATE TABLE IF NOT EXISTS email_tracking_opens (
	id VARCHAR(64) PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	message_id VARCHAR(255) NOT NULL,
	recipient_email VARCHAR(255) NOT NULL,
	sending_domain VARCHAR(255),
	opened_at TIMESTAMPTZ(6),
	open_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ(6) DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_email_tracking_opens_message ON email_tracking_opens(message_id);

CREATE TABLE IF NOT EXISTS email_tracking_links (
	id VARCHAR(64) PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	message_id VARCHAR(255) NOT NULL,
	recipient_email VARCHAR(255) NOT NULL,
	sending_domain VARCHAR(255),
	original_url TEXT NOT NULL,
	clicked_at TIMESTAMPTZ(6),
	click_count INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ(6) DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_email_tracking_links_message ON email_tracking_links(message_id);

CREATE TABLE IF NOT EXISTS email_suppressions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	domain_id UUID REFERENCES domains(id) ON DELETE CASCADE,
	email VARCHAR(255) NOT NULL,
	reason VARCHAR(50) NOT NULL,
	source_event_id VARCHAR(40),
	metadata JSONB DEFAULT '{}',
	created_at TIMESTAMPTZ(6) DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_email_suppressions_user_email ON email_suppressions(user_id, email);
CREATE INDEX IF NOT EXISTS idx_email_suppressions_reason ON email_suppressions(reason);
`
