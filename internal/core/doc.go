// Package core runs the corporate mail-order registry fetch.
//
// This package holds the domain logic independent of the HTTP layer. It can
// be driven by web handlers, CLI tools or tests without modification.
//
// # Pipeline
//
// [Service.SaveCompanies] moves one run through these stages:
//
//  1. Downloading: GET the city/district document from the FTC open-data
//     server with the configured headers.
//  2. EncodingNormalized: stream the EUC-KR body into UTF-8 on disk while
//     counting and hashing the raw bytes.
//  3. Filtered: keep rows whose 법인여부 column is 법인.
//  4. Enriched: collect 사업자등록번호 values, page the registry for their
//     corporate registration numbers and append one to every row.
//  5. Stored: hand the projection to a [CompanyStore] and the file to an
//     [ArtifactArchiver], when configured.
//
// Every run stages its files under its own directory named by run ID, so
// concurrent requests for the same city and district never share a path.
// A failed run removes its directory and returns a [PipelineError] naming
// the stage.
//
// # Concurrency
//
// A [FetchLimiter] caps runs in flight. Requests that cannot get a slot
// within the configured wait fail with [ErrTooManyFetches].
//
// # Error Handling
//
// Stage errors are the typed errors of package errs. [MapError] turns any of
// them into a [UserMessage] with a support code and HTTP status.
package core
