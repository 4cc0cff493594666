// Package task builds cache entries.
//
// A Task fetches one page, runs the optional preprocessor, inlines its
// stylesheets, scripts and images, runs the optional postprocessor and
// stores the result. Cancellation is cooperative: the build checks for it
// after every stage and never writes the cache once cancelled before the
// commit. A Manager runs tasks on a bounded number of workers.
package task
