// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

/*
Package api exposes the backup orchestrator over HTTP.

Routes are served by chi under /api/v1 and, for the backup routes, also
without the prefix so existing callers keep working:

	GET    /backups                       list artifacts, newest first
	POST   /backups                       run create -> compress -> verify -> deliver
	GET    /backups/retention/preview     what a cleanup would remove
	DELETE /backups/cleanup               remove artifacts older than maxAge days
	GET    /backups/{file}                one artifact
	DELETE /backups/{file}                remove one artifact
	GET    /backups/{file}/verify         verify and record the result
	POST   /backups/{file}/restore        restore into the configured database
	POST   /backups/{file}/deliver        send an existing artifact
	GET    /backups/{file}/download       raw artifact bytes

Supplemental routes: GET /schedules, GET /status, GET /health/live,
GET /health/ready and GET /metrics.

Every error body has the shape {"error": "...", "code": "..."}; errorCode
maps the backup error taxonomy onto HTTP status codes. Filenames taken from
the path must match the artifact naming pattern, so no path separator or
dot segment ever reaches the store.
*/
package api
