// Package fetch performs the single HTTP GET behind every page and
// subresource in a snapshot build.
//
// Only a 200 response with a non-empty body is a success. Text bodies are
// decoded with the charset declared in Content-Type; UTF-8 is assumed when
// none is declared.
package fetch
