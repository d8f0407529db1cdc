// Package server is the HTTP front door.
//
// The route table is built once at startup from configuration. Each route is
// POST /{endpoint}: file routes take a multipart upload in the "file" field,
// url routes take a JSON body {"url": "...", "metadata": {...}}. Uploads are
// written to a fresh temporary directory that is removed once the run ends.
package server
