// Package history keeps a local SQLite log of submitted jobs.
//
// Each local job groups the API jobs created for its circuits, together
// with their final status, counts and raw register data, so results can be
// shown or compared later without calling the API again. The schema is
// versioned with golang-migrate using SQL files embedded in the binary.
package history
