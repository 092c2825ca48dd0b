// Package engine wires the Bystander subsystems together and exposes the
// two inbound triggers of a chat integration: Create, for a new request
// typed by a user, and Respond, for a candidate's accept or reject.
//
// The engine package exists to break an import cycle: the root bystander
// package defines Config, Entity and the sentinel errors (imported by
// request, job, rotation, etc.) and therefore cannot import those
// packages back. Engine sits above all subsystem packages and below the
// application layer.
//
// # Building an Engine
//
//	b, err := bystander.New(
//	    bystander.WithStore(redisstore.New(client)),
//	    bystander.WithResponseTimeout(2*time.Minute),
//	)
//
//	eng, err := engine.Build(b, slackGateway,
//	    engine.WithLocker(redisstore.NewLocker(client)),
//	    engine.WithExtension(auditLog),
//	    engine.WithQueueConfig(queue.Config{
//	        Name:      bystander.DefaultQueue,
//	        RateLimit: 50,
//	    }),
//	)
//
// # Handling Events
//
//	// Slash command "/bystander <@U1> <@U2> water the plants"
//	res, err := eng.Create(ctx, engine.CreateCommand{
//	    RawText:     text,
//	    RequesterID: userID,
//	    ChannelID:   channelID,
//	})
//
//	// Button click on a prompt
//	res, err := eng.Respond(ctx, engine.ResponseCommand{
//	    RequestID: callbackID,
//	    UserID:    userID,
//	    ChannelID: channelID,
//	    Action:    gateway.ActionAccept,
//	})
//
// # Lifecycle
//
// Start runs the worker pool that fires response timeouts; Stop drains
// it, emits the shutdown hook and closes the store. A process that only
// handles inbound events may skip Start as long as some other process
// runs the pool against the same store.
package engine
