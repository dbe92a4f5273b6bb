package internal

// Version identifies the analysis code in run fingerprints. Bump it when a
// change alters numerical output.
const Version = "1.0.0"
