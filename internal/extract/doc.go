// Package extract turns catalog-entry DOM fragments into candidate products
// and price observations. It defines the pluggable extraction strategy
// abstraction and ships a heuristic implementation, a wrapper-template
// implementation, and the wrapper-generation capability.
package extract
