// Package custody implements the wallet lifecycle: key generation and
// threshold splitting at creation, share reconstruction for signing, and
// re-splitting during new-device recovery. Private keys and plaintext shares
// exist only inside a single operation and are wiped before it returns.
package custody
