// Package config reads report worker and powerctl settings from the
// environment.
//
// Settings fall into groups: Feishu access (FEISHU_APP_ID, FEISHU_APP_SECRET,
// FEISHU_BASE_URL), Redis streams (REDIS_ADDR, STREAM_KEY, RESULT_STREAM),
// schedule state (STATE_BACKEND with STATE_FILE, STATE_KEY or STATE_DB) and
// local directories (TEMPLATES_DIR, CONFIGS_DIR, SCRIPTS_DIR). Every value
// has a default except the Feishu credentials, which are checked when an API
// client is built.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !cfg.HasFeishuCredentials() {
//	    log.Println("running offline: demo audits and local rendering only")
//	}
package config
