// Package storage holds the in-memory merged game tokens.
//
// A TokenStore receives partial facts about tokens, settings, objectives,
// games and minters in any order and folds them into one GameToken per token
// id. The store is rebuilt from a snapshot with Initialize and then kept
// current with Upsert:
//
//	games := lookup.NewGames()
//	tokens := storage.NewTokenStore(games)
//	tokens.Initialize(fact.Flatten(snapshot))
//	tokens.UpsertRecords(update)
//
// Merge rules per fact kind:
//   - TokenMetadata overwrites the fields it carries and joins settings, game
//     metadata and minter address
//   - Owner, Renderer and ClientURL set their single field
//   - PlayerName is decoded from its short-string felt
//   - ObjectiveAssignment adds to the objective set
//   - Score defaults to 0 when it does not parse
//   - Context and SettingsCreated payloads degrade to empty shapes when malformed
//   - GameMetadata and GameRegistry only touch tokens already bound to that game
//   - MinterRegistry updates every token minted by that minter
//
// Metadata set with SetMetadata comes from outside the fact stream and
// survives both Upsert and Initialize.
package storage
